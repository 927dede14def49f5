package cdc

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidelake/tidelake/store"
)

// encodeValue writes a type-tagged canonical form of a scalar value.
// Two values compare equal exactly when their encodings are equal, so
// int64(1) and float64(1) stay distinct and nil equals nil.
func encodeValue(b *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
		b.WriteString("_")
	case bool:
		b.WriteString("b:")
		b.WriteString(strconv.FormatBool(t))
	case int:
		b.WriteString("i:")
		b.WriteString(strconv.FormatInt(int64(t), 10))
	case int64:
		b.WriteString("i:")
		b.WriteString(strconv.FormatInt(t, 10))
	case float64:
		b.WriteString("f:")
		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
	case string:
		b.WriteString("s:")
		b.WriteString(strconv.Itoa(len(t)))
		b.WriteString(":")
		b.WriteString(t)
	case []byte:
		encodeValue(b, string(t))
	case time.Time:
		b.WriteString("t:")
		b.WriteString(t.UTC().Format(time.RFC3339Nano))
	default:
		b.WriteString("x:")
		fmt.Fprintf(b, "%T:%v", t, t)
	}
}

// encodeRow builds a canonical key for a row projected onto the given
// columns, in column order.
func encodeRow(row store.Row, columns []string) string {
	var b strings.Builder
	for _, c := range columns {
		encodeValue(&b, row[c])
		b.WriteString("|")
	}
	return b.String()
}

func valuesEqual(a, b any) bool {
	var ba, bb strings.Builder
	encodeValue(&ba, a)
	encodeValue(&bb, b)
	return ba.String() == bb.String()
}
