package entity

import "fmt"

// 状态组合校验结果类型
const (
	StatusValid         = "valid"
	StatusInvalid       = "invalid"
	StatusAutoCorrected = "auto_corrected"
)

// StatusCorrection 校验器建议的字段替换值
type StatusCorrection struct {
	OperationalStatus string `json:"operational_status,omitempty"`
	LifecycleStatus   string `json:"lifecycle_status,omitempty"`
}

// StatusCheckResult 状态组合校验结果
// Outcome为StatusAutoCorrected时Corrected必不为nil，调用方透明应用替换值
type StatusCheckResult struct {
	Outcome   string            `json:"outcome"`
	Message   string            `json:"message,omitempty"`
	Corrected *StatusCorrection `json:"corrected,omitempty"`
}

// statusRule 单条(运行状态, 生命周期状态)组合规则
// correctOp/correctLC非空时该组合可自动纠正，否则为硬性非法
type statusRule struct {
	message   string
	correctOp string
	correctLC string
}

// 非法组合规则表，未列出的组合均合法
// 纠正后的组合必须自身合法（纠正幂等性）
var statusRules = map[[2]string]statusRule{
	// active: 已归档资产不可能仍处于active生命周期
	{AssetOpArchived, AssetLifecycleActive}: {
		message:   "archived asset cannot remain active",
		correctLC: AssetLifecycleDecommissioned,
	},

	// expected: 资产尚未到场，只能处于out_of_use
	{AssetOpInUse, AssetLifecycleExpected}: {
		message: "expected asset cannot be in use",
	},
	{AssetOpOffHirePending, AssetLifecycleExpected}: {
		message: "expected asset cannot be pending off-hire",
	},
	{AssetOpOffHired, AssetLifecycleExpected}: {
		message: "expected asset cannot be off-hired",
	},
	{AssetOpQuarantined, AssetLifecycleExpected}: {
		message: "expected asset cannot be quarantined",
	},
	{AssetOpArchived, AssetLifecycleExpected}: {
		message: "expected asset cannot be archived",
	},

	// decommissioned: 退役资产不可在用，退租流程必须先走完
	{AssetOpInUse, AssetLifecycleDecommissioned}: {
		message:   "decommissioned asset cannot be in use",
		correctOp: AssetOpOutOfUse,
	},
	{AssetOpOffHirePending, AssetLifecycleDecommissioned}: {
		message: "decommissioned asset cannot be pending off-hire",
	},

	// disposed: 已处置资产只能是off_hired或archived
	{AssetOpInUse, AssetLifecycleDisposed}: {
		message:   "disposed asset cannot be in use",
		correctOp: AssetOpArchived,
	},
	{AssetOpOutOfUse, AssetLifecycleDisposed}: {
		message:   "disposed asset cannot be out of use",
		correctOp: AssetOpArchived,
	},
	{AssetOpOffHirePending, AssetLifecycleDisposed}: {
		message: "disposed asset cannot be pending off-hire",
	},
	{AssetOpQuarantined, AssetLifecycleDisposed}: {
		message:   "disposed asset cannot be quarantined",
		correctOp: AssetOpArchived,
	},
}

// ValidateStatusCombination 校验(运行状态, 生命周期状态)组合
// 任一入参为空表示该字段本次未变更，不参与判定；纯函数，无副作用
func ValidateStatusCombination(operationalStatus, lifecycleStatus string) StatusCheckResult {
	if operationalStatus == "" || lifecycleStatus == "" {
		return StatusCheckResult{Outcome: StatusValid}
	}
	if !IsOperationalStatus(operationalStatus) {
		return StatusCheckResult{
			Outcome: StatusInvalid,
			Message: fmt.Sprintf("unknown operational status: %s", operationalStatus),
		}
	}
	if !IsLifecycleStatus(lifecycleStatus) {
		return StatusCheckResult{
			Outcome: StatusInvalid,
			Message: fmt.Sprintf("unknown lifecycle status: %s", lifecycleStatus),
		}
	}

	rule, ok := statusRules[[2]string{operationalStatus, lifecycleStatus}]
	if !ok {
		return StatusCheckResult{Outcome: StatusValid}
	}

	if rule.correctOp == "" && rule.correctLC == "" {
		return StatusCheckResult{
			Outcome: StatusInvalid,
			Message: rule.message,
		}
	}

	corrected := &StatusCorrection{
		OperationalStatus: operationalStatus,
		LifecycleStatus:   lifecycleStatus,
	}
	if rule.correctOp != "" {
		corrected.OperationalStatus = rule.correctOp
	}
	if rule.correctLC != "" {
		corrected.LifecycleStatus = rule.correctLC
	}
	return StatusCheckResult{
		Outcome:   StatusAutoCorrected,
		Message:   rule.message,
		Corrected: corrected,
	}
}
