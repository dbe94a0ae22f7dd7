// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import "fmt"

// Eligibility is a backend's verdict on whether a capability can run.
type Eligibility int

const (
	EligibilityUnknown Eligibility = iota
	EligibilitySuccess
	EligibilityFeatureNotEnabled
	EligibilityConfigNotAvailableForFeature
	EligibilityGPUBlocked
	EligibilityTooManyRecentCrashes
	EligibilityTooManyRecentTimeouts
	EligibilitySafetyModelNotAvailable
	EligibilitySafetyConfigNotAvailableForFeature
	EligibilityLanguageDetectionModelNotAvailable
	EligibilityFeatureExecutionNotEnabled
	EligibilityModelAdaptationNotAvailable
	EligibilityModelNotEligible
	EligibilityValidationPending
	EligibilityValidationFailed
	EligibilityInsufficientDiskSpace
	EligibilityModelToBeInstalled
	EligibilityNoOnDeviceFeatureUsed
)

var eligibilityNames = [...]string{
	EligibilityUnknown:                            "unknown",
	EligibilitySuccess:                            "success",
	EligibilityFeatureNotEnabled:                  "feature-not-enabled",
	EligibilityConfigNotAvailableForFeature:       "config-not-available-for-feature",
	EligibilityGPUBlocked:                         "gpu-blocked",
	EligibilityTooManyRecentCrashes:               "too-many-recent-crashes",
	EligibilityTooManyRecentTimeouts:              "too-many-recent-timeouts",
	EligibilitySafetyModelNotAvailable:            "safety-model-not-available",
	EligibilitySafetyConfigNotAvailableForFeature: "safety-config-not-available-for-feature",
	EligibilityLanguageDetectionModelNotAvailable: "language-detection-model-not-available",
	EligibilityFeatureExecutionNotEnabled:         "feature-execution-not-enabled",
	EligibilityModelAdaptationNotAvailable:        "model-adaptation-not-available",
	EligibilityModelNotEligible:                   "model-not-eligible",
	EligibilityValidationPending:                  "validation-pending",
	EligibilityValidationFailed:                   "validation-failed",
	EligibilityInsufficientDiskSpace:              "insufficient-disk-space",
	EligibilityModelToBeInstalled:                 "model-to-be-installed",
	EligibilityNoOnDeviceFeatureUsed:              "no-on-device-feature-used",
}

func (eligibility Eligibility) String() string {
	if eligibility >= 0 && int(eligibility) < len(eligibilityNames) {
		return eligibilityNames[eligibility]
	}
	return fmt.Sprintf("Eligibility(%d)", int(eligibility))
}
