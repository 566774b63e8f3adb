package mfa

import (
	"testing"
	"time"
)

func TestBackupCodes_SingleUse(t *testing.T) {
	plain, hashes, err := GenerateBackupCodes(5, 10)
	if err != nil {
		t.Fatalf("GenerateBackupCodes: %v", err)
	}
	if len(plain) != 5 || len(hashes) != 5 {
		t.Fatalf("expected 5 codes, got %d/%d", len(plain), len(hashes))
	}

	result := VerifyBackupCode(plain[2], hashes)
	if !result.IsValid {
		t.Fatal("generated code did not verify")
	}
	if len(result.RemainingHashes) != 4 {
		t.Fatalf("expected consumed code removed, got %d hashes", len(result.RemainingHashes))
	}

	// Replay against the reduced list must fail.
	if VerifyBackupCode(plain[2], result.RemainingHashes).IsValid {
		t.Fatal("consumed backup code verified again")
	}

	// Other codes are unaffected.
	if !VerifyBackupCode(plain[0], result.RemainingHashes).IsValid {
		t.Fatal("untouched backup code stopped verifying")
	}
}

func TestBackupCodes_InputCanonicalization(t *testing.T) {
	hash := HashBackupCode("ABCD-EFGH-23")
	if VerifyBackupCode("abcd efgh 23", [][32]byte{hash}).IsValid != true {
		t.Fatal("case/dash/space differences should not matter")
	}
}

func TestBackupCodes_NoMatch(t *testing.T) {
	_, hashes, _ := GenerateBackupCodes(3, 10)
	result := VerifyBackupCode("WRONGCODE1", hashes)
	if result.IsValid {
		t.Fatal("unexpected match")
	}
	if result.RemainingHashes != nil {
		t.Fatal("no-match result must not return a reduced list")
	}
}

func TestNeedsVerification(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	interval := 30 * 24 * time.Hour

	if NeedsVerification(false, nil, interval, now) {
		t.Fatal("disabled MFA never needs verification")
	}
	if !NeedsVerification(true, nil, interval, now) {
		t.Fatal("never-verified user must verify")
	}

	fresh := now.Add(-time.Hour)
	if NeedsVerification(true, &fresh, interval, now) {
		t.Fatal("recent verification should be remembered")
	}

	stale := now.Add(-31 * 24 * time.Hour)
	if !NeedsVerification(true, &stale, interval, now) {
		t.Fatal("stale verification must re-verify")
	}
}

func TestCompareDevice(t *testing.T) {
	cases := []struct {
		name                       string
		lastIP, lastUA, curIP, curUA string
		want                       DeviceChange
	}{
		{"no change", "1.2.3.4", "ua-a", "1.2.3.4", "ua-a", DeviceChange{}},
		{"ip change", "1.2.3.4", "ua-a", "5.6.7.8", "ua-a", DeviceChange{IPChanged: true, RequiresMFA: true}},
		{"ua change", "1.2.3.4", "ua-a", "1.2.3.4", "ua-b", DeviceChange{DeviceChanged: true, RequiresMFA: true}},
		{"both change", "1.2.3.4", "ua-a", "5.6.7.8", "ua-b", DeviceChange{IPChanged: true, DeviceChanged: true, RequiresMFA: true}},
		{"no prior session", "", "", "1.2.3.4", "ua-a", DeviceChange{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CompareDevice(tc.lastIP, tc.lastUA, tc.curIP, tc.curUA)
			if got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestRequiresOrganizationSetup(t *testing.T) {
	if !RequiresOrganizationSetup(true, false) {
		t.Fatal("org mandate + unenrolled user must require setup")
	}
	if RequiresOrganizationSetup(true, true) || RequiresOrganizationSetup(false, false) {
		t.Fatal("setup required only when mandated and unenrolled")
	}
}
