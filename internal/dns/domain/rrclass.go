package domain

import "strconv"

// RRClass is the class field of a question. The sinkhole only answers IN
// itself; anything else goes upstream untouched.
type RRClass uint16

const (
	RRClassIN   RRClass = 1
	RRClassCH   RRClass = 3
	RRClassHS   RRClass = 4
	RRClassNONE RRClass = 254
	RRClassANY  RRClass = 255
)

var classNames = map[RRClass]string{
	RRClassIN:   "IN",
	RRClassCH:   "CH",
	RRClassHS:   "HS",
	RRClassNONE: "NONE",
	RRClassANY:  "ANY",
}

// Internet reports whether a blocked answer can be synthesized for this class.
func (c RRClass) Internet() bool {
	return c == RRClassIN
}

func (c RRClass) String() string {
	if s, ok := classNames[c]; ok {
		return s
	}
	return "CLASS" + strconv.Itoa(int(c))
}
