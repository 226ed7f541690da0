package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// canonical ABO/Rh table, written out independently of the implementation.
var wantDonors = map[BloodGroup][]BloodGroup{
	GroupONeg:  {GroupONeg},
	GroupOPos:  {GroupOPos, GroupONeg},
	GroupANeg:  {GroupANeg, GroupONeg},
	GroupAPos:  {GroupAPos, GroupANeg, GroupOPos, GroupONeg},
	GroupBNeg:  {GroupBNeg, GroupONeg},
	GroupBPos:  {GroupBPos, GroupBNeg, GroupOPos, GroupONeg},
	GroupABNeg: {GroupANeg, GroupBNeg, GroupABNeg, GroupONeg},
	GroupABPos: {GroupAPos, GroupANeg, GroupBPos, GroupBNeg, GroupABPos, GroupABNeg, GroupOPos, GroupONeg},
}

func TestCompatibleDonorsMatchesCanonicalTable(t *testing.T) {
	for recipient, want := range wantDonors {
		got := CompatibleDonors(recipient)
		assert.ElementsMatch(t, want, got, "recipient %s", recipient)
	}
}

func TestCompatibleDonorsUniversalEnds(t *testing.T) {
	assert.Len(t, CompatibleDonors(GroupABPos), 8, "AB+ accepts every group")
	assert.Equal(t, []BloodGroup{GroupONeg}, CompatibleDonors(GroupONeg), "O- accepts only O-")
}

func TestCompatibleDonorsUnknownGroup(t *testing.T) {
	assert.Empty(t, CompatibleDonors(GroupUnknown))
	assert.Empty(t, CompatibleDonors(BloodGroup("X+")))
}

func TestCompatibleDonorsReturnsCopy(t *testing.T) {
	first := CompatibleDonors(GroupAPos)
	first[0] = GroupUnknown
	second := CompatibleDonors(GroupAPos)
	assert.NotContains(t, second, GroupUnknown)
}

func TestCompatibleRecipientsIsInverse(t *testing.T) {
	for _, donor := range Groups {
		for _, recipient := range CompatibleRecipients(donor) {
			assert.True(t, CanDonate(donor, recipient),
				"recipients of %s must accept %s", donor, donor)
		}
	}

	// O- reaches everyone, AB+ only itself.
	assert.Len(t, CompatibleRecipients(GroupONeg), 8)
	assert.Equal(t, []BloodGroup{GroupABPos}, CompatibleRecipients(GroupABPos))
}

func TestCanDonate(t *testing.T) {
	assert.True(t, CanDonate(GroupONeg, GroupAPos))
	assert.True(t, CanDonate(GroupAPos, GroupABPos))
	assert.False(t, CanDonate(GroupAPos, GroupONeg))
	assert.False(t, CanDonate(GroupUnknown, GroupAPos))
	assert.False(t, CanDonate(GroupONeg, GroupUnknown))
}

func TestParseBloodGroup(t *testing.T) {
	g, err := ParseBloodGroup("AB-")
	require.NoError(t, err)
	assert.Equal(t, GroupABNeg, g)

	_, err = ParseBloodGroup("")
	assert.Error(t, err)

	_, err = ParseBloodGroup("C+")
	assert.Error(t, err)
}
