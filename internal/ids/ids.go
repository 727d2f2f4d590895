package ids

import "github.com/segmentio/ksuid"

// New returns a K-sortable unique id. Used for users, sessions and
// security events so that primary keys sort by creation time.
func New() string {
	return ksuid.New().String()
}
