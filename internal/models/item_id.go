package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ItemID identifies a cart row either by a local id assigned before the
// server confirmed the row, or by the server's id.
type ItemID struct {
	pending bool
	value   int64
}

func Pending(localID int64) ItemID { return ItemID{pending: true, value: localID} }

func Confirmed(serverID int64) ItemID { return ItemID{value: serverID} }

func (id ItemID) IsPending() bool { return id.pending }

// ServerID returns the server id when the row is confirmed.
func (id ItemID) ServerID() (int64, bool) {
	if id.pending || id.value == 0 {
		return 0, false
	}
	return id.value, true
}

func (id ItemID) String() string {
	if id.pending {
		return "pending:" + strconv.FormatInt(id.value, 10)
	}
	return strconv.FormatInt(id.value, 10)
}

// Int64 is the wire form: pending ids are negative.
func (id ItemID) Int64() int64 {
	if id.pending {
		return -id.value
	}
	return id.value
}

func ItemIDFromInt64(v int64) ItemID {
	if v < 0 {
		return Pending(-v)
	}
	return Confirmed(v)
}

func (id ItemID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.Int64())
}

func (id *ItemID) UnmarshalJSON(b []byte) error {
	var v int64
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("item id: %w", err)
	}
	*id = ItemIDFromInt64(v)
	return nil
}
