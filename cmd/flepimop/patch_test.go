package main

import "testing"

func TestDeepMergeScalarLastWins(t *testing.T) {
	base := map[string]interface{}{"name": "base", "nslots": 2}
	overlay := map[string]interface{}{"nslots": 5}
	out := deepMerge(base, overlay)
	if out["name"] != "base" {
		t.Errorf("unset key should be kept from base, got %v", out["name"])
	}
	if out["nslots"] != 5 {
		t.Errorf("overlay scalar should win, got %v", out["nslots"])
	}
}

func TestDeepMergeNestedMap(t *testing.T) {
	base := map[string]interface{}{
		"seir": map[string]interface{}{"parameters": map[string]interface{}{"beta": 0.3}},
	}
	overlay := map[string]interface{}{
		"seir": map[string]interface{}{"parameters": map[string]interface{}{"gamma": 0.1}},
	}
	out := deepMerge(base, overlay)
	seir := out["seir"].(map[string]interface{})
	params := seir["parameters"].(map[string]interface{})
	if params["beta"] != 0.3 {
		t.Errorf("nested base key should survive an unrelated overlay sibling, got %v", params["beta"])
	}
	if params["gamma"] != 0.1 {
		t.Errorf("nested overlay key should be merged in, got %v", params["gamma"])
	}
}

func TestDeepMergeAppendsTaggedLists(t *testing.T) {
	base := map[string]interface{}{"transitions": []interface{}{"a"}}
	overlay := map[string]interface{}{"transitions": []interface{}{"b"}}
	out := deepMerge(base, overlay)
	got := out["transitions"].([]interface{})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("transitions should concatenate base then overlay, got %v", got)
	}
}

func TestDeepMergeReplacesUntaggedLists(t *testing.T) {
	base := map[string]interface{}{"subpops": []interface{}{"a", "b"}}
	overlay := map[string]interface{}{"subpops": []interface{}{"c"}}
	out := deepMerge(base, overlay)
	got := out["subpops"].([]interface{})
	if len(got) != 1 || got[0] != "c" {
		t.Errorf("an untagged list key should be replaced wholesale, got %v", got)
	}
}
