package pathfactory

import "testing"

func TestOrganizeUsesValueTimeField(t *testing.T) {
	f := &Factory{Extension: ".csv"}
	key := map[string]interface{}{"projectId": "p", "userId": "u"}
	value := map[string]interface{}{"time": 1493711175.0}

	org := f.Organize("a", key, value, 0)
	if org.Time == nil {
		t.Fatal("expected resolved time")
	}
	want := "20170502_0700"
	if got := timeBin(org.Time, Hourly); got != want {
		t.Errorf("expected bin %s, got %s", want, got)
	}
}

func TestOrganizeFallsBackToKeyStartField(t *testing.T) {
	f := &Factory{Extension: ".csv"}
	key := map[string]interface{}{
		"projectId": "p", "userId": "u",
		"start": int64((1493711175 - 3600) * 1000),
	}
	value := map[string]interface{}{}

	org := f.Organize("a", key, value, 0)
	want := "20170502_0600"
	if got := timeBin(org.Time, Hourly); got != want {
		t.Errorf("expected bin %s, got %s", want, got)
	}
}

func TestOrganizeUnknownDateWhenNeitherFieldPresent(t *testing.T) {
	f := &Factory{Extension: ".csv"}
	org := f.Organize("a", map[string]interface{}{}, map[string]interface{}{}, 0)
	if org.Time != nil {
		t.Fatalf("expected nil time, got %v", org.Time)
	}
	if got := timeBin(org.Time, Hourly); got != unknownDate {
		t.Errorf("expected %s, got %s", unknownDate, got)
	}
}

func TestOrganizeSanitizesIdentifiers(t *testing.T) {
	f := &Factory{Extension: ".csv"}
	key := map[string]interface{}{"projectId": "proj/../etc", "userId": ""}
	org := f.Organize("topic", key, map[string]interface{}{}, 0)
	want := "projetc/unknown-user/topic/unknown_date.csv"
	if org.Path != want {
		t.Errorf("expected path %q, got %q", want, org.Path)
	}
}

func TestOrganizeSuffixesRetryAttempts(t *testing.T) {
	f := &Factory{Extension: ".csv"}
	org := f.Organize("topic", map[string]interface{}{}, map[string]interface{}{}, 2)
	want := "unknown-project/unknown-user/topic/unknown_date_2.csv"
	if org.Path != want {
		t.Errorf("expected path %q, got %q", want, org.Path)
	}
}
