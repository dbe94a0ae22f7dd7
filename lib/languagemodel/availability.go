// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package languagemodel

import (
	"fmt"

	"github.com/bureau-foundation/languagemodel/lib/executor"
)

// Availability is the caller-visible answer to whether a session can
// be created.
type Availability int

const (
	AvailabilityReadily Availability = iota
	AvailabilityAfterDownload
	AvailabilityNoServiceNotRunning
	AvailabilityNoUnknown
	AvailabilityNoFeatureNotEnabled
	AvailabilityNoConfigNotAvailableForFeature
	AvailabilityNoGPUBlocked
	AvailabilityNoTooManyRecentCrashes
	AvailabilityNoTooManyRecentTimeouts
	AvailabilityNoSafetyModelNotAvailable
	AvailabilityNoSafetyConfigNotAvailableForFeature
	AvailabilityNoLanguageDetectionModelNotAvailable
	AvailabilityNoFeatureExecutionNotEnabled
	AvailabilityNoModelAdaptationNotAvailable
	AvailabilityNoModelNotEligible
	AvailabilityNoValidationPending
	AvailabilityNoValidationFailed
	AvailabilityNoInsufficientDiskSpace
)

var availabilityNames = [...]string{
	AvailabilityReadily:                              "readily",
	AvailabilityAfterDownload:                        "after-download",
	AvailabilityNoServiceNotRunning:                  "no-service-not-running",
	AvailabilityNoUnknown:                            "no-unknown",
	AvailabilityNoFeatureNotEnabled:                  "no-feature-not-enabled",
	AvailabilityNoConfigNotAvailableForFeature:       "no-config-not-available-for-feature",
	AvailabilityNoGPUBlocked:                         "no-gpu-blocked",
	AvailabilityNoTooManyRecentCrashes:               "no-too-many-recent-crashes",
	AvailabilityNoTooManyRecentTimeouts:              "no-too-many-recent-timeouts",
	AvailabilityNoSafetyModelNotAvailable:            "no-safety-model-not-available",
	AvailabilityNoSafetyConfigNotAvailableForFeature: "no-safety-config-not-available-for-feature",
	AvailabilityNoLanguageDetectionModelNotAvailable: "no-language-detection-model-not-available",
	AvailabilityNoFeatureExecutionNotEnabled:         "no-feature-execution-not-enabled",
	AvailabilityNoModelAdaptationNotAvailable:        "no-model-adaptation-not-available",
	AvailabilityNoModelNotEligible:                   "no-model-not-eligible",
	AvailabilityNoValidationPending:                  "no-validation-pending",
	AvailabilityNoValidationFailed:                   "no-validation-failed",
	AvailabilityNoInsufficientDiskSpace:              "no-insufficient-disk-space",
}

func (availability Availability) String() string {
	if availability >= 0 && int(availability) < len(availabilityNames) {
		return availabilityNames[availability]
	}
	return fmt.Sprintf("Availability(%d)", int(availability))
}

// AvailabilityFromEligibility maps a backend verdict to an
// availability code. Both "to be installed" and "no on-device feature
// used yet" mean the model arrives with a download.
func AvailabilityFromEligibility(eligibility executor.Eligibility) Availability {
	switch eligibility {
	case executor.EligibilitySuccess:
		return AvailabilityReadily
	case executor.EligibilityModelToBeInstalled, executor.EligibilityNoOnDeviceFeatureUsed:
		return AvailabilityAfterDownload
	case executor.EligibilityFeatureNotEnabled:
		return AvailabilityNoFeatureNotEnabled
	case executor.EligibilityConfigNotAvailableForFeature:
		return AvailabilityNoConfigNotAvailableForFeature
	case executor.EligibilityGPUBlocked:
		return AvailabilityNoGPUBlocked
	case executor.EligibilityTooManyRecentCrashes:
		return AvailabilityNoTooManyRecentCrashes
	case executor.EligibilityTooManyRecentTimeouts:
		return AvailabilityNoTooManyRecentTimeouts
	case executor.EligibilitySafetyModelNotAvailable:
		return AvailabilityNoSafetyModelNotAvailable
	case executor.EligibilitySafetyConfigNotAvailableForFeature:
		return AvailabilityNoSafetyConfigNotAvailableForFeature
	case executor.EligibilityLanguageDetectionModelNotAvailable:
		return AvailabilityNoLanguageDetectionModelNotAvailable
	case executor.EligibilityFeatureExecutionNotEnabled:
		return AvailabilityNoFeatureExecutionNotEnabled
	case executor.EligibilityModelAdaptationNotAvailable:
		return AvailabilityNoModelAdaptationNotAvailable
	case executor.EligibilityModelNotEligible:
		return AvailabilityNoModelNotEligible
	case executor.EligibilityValidationPending:
		return AvailabilityNoValidationPending
	case executor.EligibilityValidationFailed:
		return AvailabilityNoValidationFailed
	case executor.EligibilityInsufficientDiskSpace:
		return AvailabilityNoInsufficientDiskSpace
	default:
		return AvailabilityNoUnknown
	}
}
