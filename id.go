package thread

import "go.jetify.com/typeid"

func newID(prefix string) string {
	id, err := typeid.WithPrefix(prefix)
	if err != nil {
		panic(err)
	}
	return id.String()
}

// NewThreadID returns a new prefixed ID for thread identification.
func NewThreadID() string {
	return newID("thread")
}

// NewBranchID returns a new prefixed ID for branch identification.
func NewBranchID() string {
	return newID("branch")
}

// NewForkID returns a new prefixed ID for fork identification.
func NewForkID() string {
	return newID("fork")
}
