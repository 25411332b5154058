package transform

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

const hashTimeLayout = "2006-01-02 15:04:05"

// rowHash returns the hex md5 of the parts joined with underscores.
func rowHash(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, "_")))
	return hex.EncodeToString(sum[:])
}

func salesRowHash(txID int64, date time.Time, customerID string) string {
	return rowHash(strconv.FormatInt(txID, 10), date.Format(hashTimeLayout), customerID)
}

func customerRowHash(customerID, gender string, age int) string {
	return rowHash(customerID, gender, strconv.Itoa(age))
}

func productRowHash(id int64, name string, price *float64) string {
	p := ""
	if price != nil {
		p = strconv.FormatFloat(*price, 'f', -1, 64)
	}
	return rowHash(strconv.FormatInt(id, 10), name, p)
}

// nullable converts a typed pointer into a value suitable for COPY,
// mapping nil to an untyped nil.
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
