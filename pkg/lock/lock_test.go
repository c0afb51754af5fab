package lock

import "testing"

func TestKey(t *testing.T) {
	if got := Key("core-1"); got != "VTPSYNC_LOCK|core-1" {
		t.Errorf("Key() = %q", got)
	}
}
