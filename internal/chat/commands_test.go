package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand_Approve(t *testing.T) {
	cmd := ParseCommand("approve trd-ab12cd34ef56")
	assert.Equal(t, CommandApprove, cmd.Kind)
	assert.Equal(t, "TRD-AB12CD34EF56", cmd.TradeID)
}

func TestParseCommand_RejectWithReason(t *testing.T) {
	cmd := ParseCommand("REJECT TRD-AB12CD34EF56 too risky right now")
	assert.Equal(t, CommandReject, cmd.Kind)
	assert.Equal(t, "TRD-AB12CD34EF56", cmd.TradeID)
	assert.Equal(t, "too risky right now", cmd.Reason)
}

func TestParseCommand_RejectWithoutReasonDefaults(t *testing.T) {
	cmd := ParseCommand("reject TRD-AB12CD34EF56")
	assert.Equal(t, CommandReject, cmd.Kind)
	assert.Equal(t, defaultRejectionReason, cmd.Reason)
}

func TestParseCommand_StatusAndPositionsIgnoreCase(t *testing.T) {
	assert.Equal(t, CommandStatus, ParseCommand("status").Kind)
	assert.Equal(t, CommandStatus, ParseCommand("STATUS").Kind)
	assert.Equal(t, CommandPositions, ParseCommand("Positions").Kind)
}

func TestParseCommand_MissingIDIsUnknown(t *testing.T) {
	assert.Equal(t, CommandUnknown, ParseCommand("approve").Kind)
	assert.Equal(t, CommandUnknown, ParseCommand("reject").Kind)
}

func TestParseCommand_EmptyOrGibberishIsUnknown(t *testing.T) {
	assert.Equal(t, CommandUnknown, ParseCommand("").Kind)
	assert.Equal(t, CommandUnknown, ParseCommand("hello there").Kind)
}
