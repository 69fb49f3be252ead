package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlacklistByDocumentID(t *testing.T) {
	deny := NewBlacklist()
	deny.AddDocument("doc-1")

	assert.True(t, deny.Blocked(&ParentDocument{DocID: "doc-1"}))
	assert.False(t, deny.Blocked(&ParentDocument{DocID: "doc-2"}))

	deny.RemoveDocument("doc-1")
	assert.False(t, deny.Blocked(&ParentDocument{DocID: "doc-1"}))
}

func TestBlacklistByTerm(t *testing.T) {
	deny := NewBlacklist()
	deny.AddTerm("secret")

	assert.True(t, deny.Blocked(&ParentDocument{DocID: "d", Title: "Secret plans"}))
	// a blocked term also blocks its extensions
	assert.True(t, deny.Blocked(&ParentDocument{DocID: "d", Title: "All the secrets"}))
	assert.True(t, deny.Blocked(&ParentDocument{DocID: "d", SourceFile: "/tmp/secret.md"}))
	assert.False(t, deny.Blocked(&ParentDocument{DocID: "d", Title: "Public roadmap"}))
}

func TestBlacklistByPattern(t *testing.T) {
	deny := NewBlacklist()
	require.NoError(t, deny.AddPattern(`(?i)\.env$`))

	assert.True(t, deny.Blocked(&ParentDocument{DocID: "d", SourceFile: "/home/u/project/.ENV"}))
	assert.False(t, deny.Blocked(&ParentDocument{DocID: "d", SourceFile: "/home/u/project/readme.md"}))

	assert.Error(t, deny.AddPattern(`([`))
}

func TestBlacklistEmptyAllowsEverything(t *testing.T) {
	deny := NewBlacklist()
	assert.False(t, deny.Blocked(&ParentDocument{DocID: "d", Title: "anything", SourceFile: "file.md"}))
}
