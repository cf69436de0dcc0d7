package model

// UnseenCategoryCode is substituted when a categorical value was never
// observed during encoder training. Encoding never fails.
const UnseenCategoryCode = -1

// LabelEncoder maps a categorical value to the integer code assigned at
// training time. buildIndex is called once at bundle load; after that the
// encoder is read-only and safe for concurrent use.
type LabelEncoder struct {
	Classes []string `json:"classes"`

	codes map[string]int
}

func (e *LabelEncoder) buildIndex() {
	e.codes = make(map[string]int, len(e.Classes))
	for i, c := range e.Classes {
		e.codes[c] = i
	}
}

func (e *LabelEncoder) Transform(value string) int {
	if e.codes == nil {
		for i, c := range e.Classes {
			if c == value {
				return i
			}
		}
		return UnseenCategoryCode
	}
	if code, ok := e.codes[value]; ok {
		return code
	}
	return UnseenCategoryCode
}
