package api

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestFlexInt64(t *testing.T) {
	tests := []struct {
		in   string
		want flexInt64
	}{
		{`5`, flexInt64{Value: 5, Set: true, Valid: true}},
		{`"12"`, flexInt64{Value: 12, Set: true, Valid: true}},
		{`" 7 "`, flexInt64{Value: 7, Set: true, Valid: true}},
		{`3.0`, flexInt64{Value: 3, Set: true, Valid: true}},
		{`0`, flexInt64{Valid: true}},
		{`""`, flexInt64{}},
		{`null`, flexInt64{}},
		{`2.5`, flexInt64{Set: true}},
		{`"abc"`, flexInt64{Set: true}},
		{`true`, flexInt64{Set: true}},
		{`{"a":1}`, flexInt64{Set: true}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var got struct {
				ID flexInt64 `json:"id"`
			}
			if err := json.Unmarshal([]byte(`{"id":`+tt.in+`}`), &got); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if got.ID != tt.want {
				t.Errorf("flexInt64 = %+v, want %+v", got.ID, tt.want)
			}
		})
	}
}

func TestFlexInt64List(t *testing.T) {
	tests := []struct {
		in   string
		want []int64
	}{
		{`[1, "3", 5.0]`, []int64{1, 3, 5}},
		{`[1, "x", null, 2.5, true]`, []int64{1}},
		{`[]`, nil},
		{`"1,2"`, nil},
		{`null`, nil},
		{`{"id":1}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var got LaunchCampaignRequest
			if err := json.Unmarshal([]byte(`{"target_ids":`+tt.in+`}`), &got); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if !reflect.DeepEqual([]int64(got.TargetIDs), tt.want) {
				t.Errorf("TargetIDs = %v, want %v", []int64(got.TargetIDs), tt.want)
			}
		})
	}
}
