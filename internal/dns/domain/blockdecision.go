package domain

// BlockDecision is the verdict for one canonical hostname.
// MatchedName is the listed entry that caused the block: the name itself, or
// with BySuffix set, one of its parents.
type BlockDecision struct {
	Blocked     bool
	MatchedName string
	BySuffix    bool
}

func (d BlockDecision) IsBlocked() bool { return d.Blocked }

// String renders the verdict for logs, e.g. "blocked by suffix ads.example.com".
func (d BlockDecision) String() string {
	switch {
	case !d.Blocked:
		return "allowed"
	case d.BySuffix:
		return "blocked by suffix " + d.MatchedName
	default:
		return "blocked " + d.MatchedName
	}
}

// EmptyDecision lets the query through.
func EmptyDecision() BlockDecision { return BlockDecision{} }

func ExactDecision(name string) BlockDecision {
	return BlockDecision{Blocked: true, MatchedName: name}
}

func SuffixDecision(parent string) BlockDecision {
	return BlockDecision{Blocked: true, MatchedName: parent, BySuffix: true}
}
