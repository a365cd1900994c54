package model

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func join(r *Room, requested string) *User {
	u := &User{ID: fmt.Sprintf("c%d", len(r.Users)), Name: r.ResolveName(requested)}
	r.Users = append(r.Users, u)
	return u
}

func TestResolveNameSuffixesRequestedBase(t *testing.T) {
	r := &Room{ID: "r1"}

	assert.Equal(t, "Ann", join(r, "Ann").Name)
	assert.Equal(t, "Ann1", join(r, "Ann").Name)
	// The counter restarts from the requested base, suffixes never chain
	// into names like "Ann11".
	assert.Equal(t, "Ann2", join(r, "Ann").Name)
}

func TestResolveNameDefaultsAndTrims(t *testing.T) {
	r := &Room{ID: "r1"}

	assert.Equal(t, "Author", join(r, "").Name)
	assert.Equal(t, "Author1", join(r, "   ").Name)
	assert.Equal(t, "Bob", join(r, "  Bob  ").Name)
}

func TestResolveNamePairwiseDistinct(t *testing.T) {
	r := &Room{ID: "r1"}
	requested := []string{"Ann", "Ann", "Ann1", "Ann", "", "", "Author", "Ann1"}
	for _, name := range requested {
		join(r, name)
	}

	seen := make(map[string]struct{})
	for _, u := range r.Users {
		_, dup := seen[u.Name]
		assert.False(t, dup, "duplicate name %s", u.Name)
		seen[u.Name] = struct{}{}
	}
}

func TestHostIsPositional(t *testing.T) {
	r := &Room{ID: "r1"}
	a := join(r, "a")
	b := join(r, "b")
	c := join(r, "c")

	assert.Equal(t, a.ID, r.HostID())

	assert.True(t, r.RemoveUser(a.ID))
	assert.Equal(t, b.ID, r.HostID(), "next-oldest member becomes host")

	assert.True(t, r.RemoveUser(b.ID))
	assert.Equal(t, c.ID, r.HostID())

	assert.True(t, r.RemoveUser(c.ID))
	assert.Equal(t, "", r.HostID())
}

func TestRemoveUserKeepsJoinOrder(t *testing.T) {
	r := &Room{ID: "r1"}
	join(r, "a")
	b := join(r, "b")
	join(r, "c")
	d := join(r, "d")

	assert.True(t, r.RemoveUser(b.ID))
	assert.False(t, r.RemoveUser(b.ID))

	names := make([]string, 0, len(r.Users))
	for _, u := range r.Users {
		names = append(names, u.Name)
	}
	assert.Equal(t, []string{"a", "c", "d"}, names)

	assert.True(t, r.RemoveUser(d.ID))
	assert.Equal(t, "a", r.Users[0].Name)
}

func TestHasConn(t *testing.T) {
	r := &Room{ID: "r1"}
	u := join(r, "a")

	assert.True(t, r.HasConn(u.ID))
	assert.False(t, r.HasConn("nope"))
}

func TestCloneIsDetached(t *testing.T) {
	r := &Room{ID: "r1", FileType: FileTypeVideo, FileSource: "http://x/y.mp4"}
	join(r, "a")
	r.Messages = append(r.Messages, ChatMessage{Author: "a", Message: "hi", Time: "12:00"})

	c := r.Clone()
	c.Users[0].Name = "mutated"
	c.Messages[0].Message = "mutated"
	c.FileSource = "mutated"

	assert.Equal(t, "a", r.Users[0].Name)
	assert.Equal(t, "hi", r.Messages[0].Message)
	assert.Equal(t, "http://x/y.mp4", r.FileSource)
}
