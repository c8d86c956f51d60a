package bytecode

// EmptyStringID is the id of the empty string, which every StringTable
// contains. Uninitialized string variables hold this id.
const EmptyStringID = 0

// StringTable maps small integer ids to string literals. Literals are
// deduplicated by value, so two ids are equal exactly when their strings are.
type StringTable struct {
	values []string
	ids    map[string]int
}

// NewStringTable returns a table holding only the empty string.
func NewStringTable() *StringTable {
	t := &StringTable{ids: map[string]int{}}
	t.Intern("")
	return t
}

// Intern returns the id for s, adding it to the table if necessary.
func (t *StringTable) Intern(s string) int {
	if id, ok := t.ids[s]; ok {
		return id
	}
	id := len(t.values)
	t.values = append(t.values, s)
	t.ids[s] = id
	return id
}

// Lookup returns the string with the given id.
func (t *StringTable) Lookup(id int) (string, bool) {
	if id < 0 || id >= len(t.values) {
		return "", false
	}
	return t.values[id], true
}

// Len returns the number of strings in the table.
func (t *StringTable) Len() int {
	return len(t.values)
}

// Values returns a copy of the table contents, indexed by id.
func (t *StringTable) Values() []string {
	return copyStrings(t.values)
}
