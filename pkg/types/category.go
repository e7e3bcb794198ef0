package types

// Category identifies the evidentiary data type of a record. The set is
// fixed: every record stored by the index must carry one of these values.
type Category string

const (
	CategoryBrowsing   Category = "browsing"
	CategoryCalls      Category = "calls"
	CategoryChats      Category = "chats"
	CategoryContacts   Category = "contacts"
	CategoryEmails     Category = "emails"
	CategoryLocations  Category = "locations"
	CategoryNotes      Category = "notes"
	CategoryPasswords  Category = "passwords"
	CategorySearches   Category = "searches"
	CategoryVoicemails Category = "voicemails"
)

// Categories lists every valid category in the order source files are
// indexed. Callers must not mutate the returned slice.
var Categories = []Category{
	CategoryBrowsing,
	CategoryCalls,
	CategoryChats,
	CategoryContacts,
	CategoryEmails,
	CategoryLocations,
	CategoryNotes,
	CategoryPasswords,
	CategorySearches,
	CategoryVoicemails,
}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

func (c Category) String() string {
	return string(c)
}
