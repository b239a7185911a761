package domain

import "errors"

var (
	ErrEmptyQueryName = errors.New("query name is empty")
	ErrZeroQueryType  = errors.New("query type is zero")
)

// Question is what the resolver sees of an incoming query. Name is exactly
// as it arrived; matching normalizes a copy.
type Question struct {
	ID    uint16
	Name  string
	Type  RRType
	Class RRClass
}

// NewQuestion returns a Question, or one of the sentinel errors above when
// the query cannot be decided. Unrecognized types and classes pass, since
// they may still be forwarded.
func NewQuestion(id uint16, name string, qtype RRType, class RRClass) (Question, error) {
	q := Question{ID: id, Name: name, Type: qtype, Class: class}
	if err := q.Validate(); err != nil {
		return Question{}, err
	}
	return q, nil
}

func (q Question) Validate() error {
	switch {
	case q.Name == "":
		return ErrEmptyQueryName
	case q.Type == 0:
		return ErrZeroQueryType
	}
	return nil
}
