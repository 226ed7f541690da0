package domain

import dErrors "hemolink/pkg/domain-errors"

// BloodGroup is an ABO/Rh blood type. GroupUnknown marks donors whose type
// has not been lab-confirmed; an unknown group is compatible with nothing,
// which keeps such donors out of matching until confirmation.
type BloodGroup string

const (
	GroupAPos    BloodGroup = "A+"
	GroupANeg    BloodGroup = "A-"
	GroupBPos    BloodGroup = "B+"
	GroupBNeg    BloodGroup = "B-"
	GroupABPos   BloodGroup = "AB+"
	GroupABNeg   BloodGroup = "AB-"
	GroupOPos    BloodGroup = "O+"
	GroupONeg    BloodGroup = "O-"
	GroupUnknown BloodGroup = ""
)

// Groups lists the eight known ABO/Rh types in a stable order.
var Groups = []BloodGroup{
	GroupAPos, GroupANeg, GroupBPos, GroupBNeg,
	GroupABPos, GroupABNeg, GroupOPos, GroupONeg,
}

// compatibleDonors is the canonical ABO/Rh table: for each recipient group,
// the donor groups that may safely supply it. O- is the universal donor,
// AB+ the universal recipient.
var compatibleDonors = map[BloodGroup][]BloodGroup{
	GroupAPos:  {GroupAPos, GroupANeg, GroupOPos, GroupONeg},
	GroupANeg:  {GroupANeg, GroupONeg},
	GroupBPos:  {GroupBPos, GroupBNeg, GroupOPos, GroupONeg},
	GroupBNeg:  {GroupBNeg, GroupONeg},
	GroupABPos: {GroupAPos, GroupANeg, GroupBPos, GroupBNeg, GroupABPos, GroupABNeg, GroupOPos, GroupONeg},
	GroupABNeg: {GroupANeg, GroupBNeg, GroupABNeg, GroupONeg},
	GroupOPos:  {GroupOPos, GroupONeg},
	GroupONeg:  {GroupONeg},
}

// CompatibleDonors returns the donor groups that may supply the requested
// group. Unknown or invalid groups resolve to an empty set, signaling
// "cannot match" rather than an error.
func CompatibleDonors(requested BloodGroup) []BloodGroup {
	donors, ok := compatibleDonors[requested]
	if !ok {
		return nil
	}
	out := make([]BloodGroup, len(donors))
	copy(out, donors)
	return out
}

// CompatibleRecipients returns the groups a donor of the given group may
// supply. Derived from the same table so the two directions cannot drift.
func CompatibleRecipients(donor BloodGroup) []BloodGroup {
	if !donor.IsValid() {
		return nil
	}
	var out []BloodGroup
	for _, recipient := range Groups {
		for _, d := range compatibleDonors[recipient] {
			if d == donor {
				out = append(out, recipient)
				break
			}
		}
	}
	return out
}

// CanDonate reports whether a donor group may supply a recipient group.
func CanDonate(donor, recipient BloodGroup) bool {
	for _, d := range compatibleDonors[recipient] {
		if d == donor {
			return true
		}
	}
	return false
}

// IsValid checks if the group is one of the eight known ABO/Rh types.
// GroupUnknown is not valid for matching purposes.
func (g BloodGroup) IsValid() bool {
	_, ok := compatibleDonors[g]
	return ok
}

func (g BloodGroup) String() string { return string(g) }

// ParseBloodGroup constructs a BloodGroup from external input.
//
// Errors: CodeInvalidInput when the value is empty or not one of the eight
// ABO/Rh types.
func ParseBloodGroup(s string) (BloodGroup, error) {
	if s == "" {
		return GroupUnknown, dErrors.New(dErrors.CodeInvalidInput, "blood group cannot be empty")
	}
	g := BloodGroup(s)
	if !g.IsValid() {
		return GroupUnknown, dErrors.New(dErrors.CodeInvalidInput, "invalid blood group")
	}
	return g, nil
}
