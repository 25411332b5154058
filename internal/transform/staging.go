package transform

var stgSalesColumns = []Column{
	{Name: "transaction_id", Type: Integer},
	{Name: "date", Type: Timestamp},
	{Name: "customer_id", Type: String},
	{Name: "gender", Type: String},
	{Name: "age", Type: Integer},
	{Name: "product_category", Type: String},
	{Name: "quantity", Type: Integer},
	{Name: "price_per_unit", Type: Float},
	{Name: "total_amount", Type: Float},
	{Name: "row_hash", Type: String},
	{Name: ColExtractedAt, Type: Timestamp},
	{Name: ColSource, Type: String},
}

var stgProductColumns = []Column{
	{Name: "api_product_id", Type: Integer},
	{Name: "product_name", Type: String},
	{Name: "api_price", Type: Float},
	{Name: "description", Type: String},
	{Name: "product_category", Type: String},
	{Name: "product_image_url", Type: String},
	{Name: "rating_rate", Type: Float},
	{Name: "rating_count", Type: Integer},
	{Name: ColExtractedAt, Type: Timestamp},
	{Name: ColSource, Type: String},
}

func (c *CleanSales) Name() string      { return TableStgRetailSales }
func (c *CleanSales) Columns() []Column { return stgSalesColumns }
func (c *CleanSales) Len() int          { return len(c.Records) }

func (c *CleanSales) Rows() [][]any {
	out := make([][]any, len(c.Records))
	for i, r := range c.Records {
		out[i] = []any{
			r.TransactionID, r.Date, r.CustomerID, r.Gender, int64(r.Age),
			r.ProductCategory, r.Quantity, r.PricePerUnit, r.TotalAmount,
			r.RowHash, nullable(r.ExtractedAt), r.Source,
		}
	}
	return out
}

func (c *CleanProducts) Name() string      { return TableStgAPIProducts }
func (c *CleanProducts) Columns() []Column { return stgProductColumns }
func (c *CleanProducts) Len() int          { return len(c.Records) }

func (c *CleanProducts) Rows() [][]any {
	out := make([][]any, len(c.Records))
	for i, r := range c.Records {
		out[i] = []any{
			r.APIProductID, r.ProductName, nullable(r.APIPrice), r.Description,
			r.ProductCategory, r.ImageURL, nullable(r.RatingRate),
			nullable(r.RatingCount), nullable(r.ExtractedAt), r.Source,
		}
	}
	return out
}
