// Package privacy implements the cohort-size gate applied to every result
// an analysis produces. A result whose reported cohort is below the
// catalog's minimum (or unknown on a high-privacy catalog) is blocked: the
// external payload becomes a placeholder and the original is retained
// internally for audit. A blocked result never fails the job.
package privacy
