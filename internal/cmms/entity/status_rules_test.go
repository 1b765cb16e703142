package entity

import "testing"

func TestValidateStatusCombinationValid(t *testing.T) {
	cases := [][2]string{
		{AssetOpInUse, AssetLifecycleActive},
		{AssetOpOutOfUse, AssetLifecycleActive},
		{AssetOpOffHirePending, AssetLifecycleActive},
		{AssetOpOffHired, AssetLifecycleActive},
		{AssetOpQuarantined, AssetLifecycleActive},
		{AssetOpOutOfUse, AssetLifecycleExpected},
		{AssetOpOutOfUse, AssetLifecycleDecommissioned},
		{AssetOpOffHired, AssetLifecycleDecommissioned},
		{AssetOpQuarantined, AssetLifecycleDecommissioned},
		{AssetOpArchived, AssetLifecycleDecommissioned},
		{AssetOpOffHired, AssetLifecycleDisposed},
		{AssetOpArchived, AssetLifecycleDisposed},
	}

	for _, c := range cases {
		result := ValidateStatusCombination(c[0], c[1])
		if result.Outcome != StatusValid {
			t.Errorf("(%s, %s): expected valid, got %s (%s)", c[0], c[1], result.Outcome, result.Message)
		}
		if result.Corrected != nil {
			t.Errorf("(%s, %s): valid result must not carry a correction", c[0], c[1])
		}
	}
}

func TestValidateStatusCombinationInvalid(t *testing.T) {
	cases := [][2]string{
		{AssetOpInUse, AssetLifecycleExpected},
		{AssetOpOffHirePending, AssetLifecycleExpected},
		{AssetOpOffHired, AssetLifecycleExpected},
		{AssetOpQuarantined, AssetLifecycleExpected},
		{AssetOpArchived, AssetLifecycleExpected},
		{AssetOpOffHirePending, AssetLifecycleDecommissioned},
		{AssetOpOffHirePending, AssetLifecycleDisposed},
	}

	for _, c := range cases {
		result := ValidateStatusCombination(c[0], c[1])
		if result.Outcome != StatusInvalid {
			t.Errorf("(%s, %s): expected invalid, got %s", c[0], c[1], result.Outcome)
		}
		if result.Message == "" {
			t.Errorf("(%s, %s): invalid result must carry a message", c[0], c[1])
		}
		if result.Corrected != nil {
			t.Errorf("(%s, %s): hard-invalid result must not carry a correction", c[0], c[1])
		}
	}
}

func TestValidateStatusCombinationAutoCorrected(t *testing.T) {
	cases := []struct {
		op, lc         string
		wantOp, wantLC string
	}{
		{AssetOpArchived, AssetLifecycleActive, AssetOpArchived, AssetLifecycleDecommissioned},
		{AssetOpInUse, AssetLifecycleDecommissioned, AssetOpOutOfUse, AssetLifecycleDecommissioned},
		{AssetOpInUse, AssetLifecycleDisposed, AssetOpArchived, AssetLifecycleDisposed},
		{AssetOpOutOfUse, AssetLifecycleDisposed, AssetOpArchived, AssetLifecycleDisposed},
		{AssetOpQuarantined, AssetLifecycleDisposed, AssetOpArchived, AssetLifecycleDisposed},
	}

	for _, c := range cases {
		result := ValidateStatusCombination(c.op, c.lc)
		if result.Outcome != StatusAutoCorrected {
			t.Errorf("(%s, %s): expected auto_corrected, got %s", c.op, c.lc, result.Outcome)
			continue
		}
		if result.Corrected == nil {
			t.Fatalf("(%s, %s): auto_corrected result must carry a correction", c.op, c.lc)
		}
		if result.Corrected.OperationalStatus != c.wantOp || result.Corrected.LifecycleStatus != c.wantLC {
			t.Errorf("(%s, %s): corrected to (%s, %s), want (%s, %s)",
				c.op, c.lc, result.Corrected.OperationalStatus, result.Corrected.LifecycleStatus,
				c.wantOp, c.wantLC)
		}
	}
}

// A correction must land on a combination the validator itself accepts.
func TestValidateStatusCombinationCorrectionIdempotent(t *testing.T) {
	ops := []string{AssetOpInUse, AssetOpOutOfUse, AssetOpOffHirePending, AssetOpOffHired, AssetOpQuarantined, AssetOpArchived}
	lcs := []string{AssetLifecycleActive, AssetLifecycleExpected, AssetLifecycleDecommissioned, AssetLifecycleDisposed}

	for _, op := range ops {
		for _, lc := range lcs {
			result := ValidateStatusCombination(op, lc)
			if result.Outcome != StatusAutoCorrected {
				continue
			}
			again := ValidateStatusCombination(result.Corrected.OperationalStatus, result.Corrected.LifecycleStatus)
			if again.Outcome != StatusValid {
				t.Errorf("correction of (%s, %s) landed on (%s, %s) which is %s",
					op, lc, result.Corrected.OperationalStatus, result.Corrected.LifecycleStatus, again.Outcome)
			}
		}
	}
}

func TestValidateStatusCombinationPartial(t *testing.T) {
	// A missing field is not judged
	if r := ValidateStatusCombination("", AssetLifecycleDisposed); r.Outcome != StatusValid {
		t.Errorf("empty operational status: expected valid, got %s", r.Outcome)
	}
	if r := ValidateStatusCombination(AssetOpInUse, ""); r.Outcome != StatusValid {
		t.Errorf("empty lifecycle status: expected valid, got %s", r.Outcome)
	}
	if r := ValidateStatusCombination("", ""); r.Outcome != StatusValid {
		t.Errorf("both empty: expected valid, got %s", r.Outcome)
	}
}

func TestValidateStatusCombinationUnknownValues(t *testing.T) {
	if r := ValidateStatusCombination("floating", AssetLifecycleActive); r.Outcome != StatusInvalid {
		t.Errorf("unknown operational status: expected invalid, got %s", r.Outcome)
	}
	if r := ValidateStatusCombination(AssetOpInUse, "sold"); r.Outcome != StatusInvalid {
		t.Errorf("unknown lifecycle status: expected invalid, got %s", r.Outcome)
	}
}
