package config

import "time"

// AdmissionConfig tunes how the admission controller talks to storage.
type AdmissionConfig struct {
	RetryAttempts int           // total attempts for storage faults, at least 1
	RetryBackoff  time.Duration // first pause between attempts, doubled after each
	LockTimeout   time.Duration // upper bound for one admission transaction, 0 = none
}

// LoadAdmissionConfig reads ADMISSION_* variables.
func LoadAdmissionConfig() AdmissionConfig {
	c := AdmissionConfig{
		RetryAttempts: envInt("ADMISSION_RETRY_ATTEMPTS", 3),
		RetryBackoff:  envDur("ADMISSION_RETRY_BACKOFF", 50*time.Millisecond),
		LockTimeout:   envDur("ADMISSION_LOCK_TIMEOUT", 5*time.Second),
	}
	if c.RetryAttempts < 1 {
		c.RetryAttempts = 1
	}
	if c.RetryBackoff < 0 {
		c.RetryBackoff = 0
	}
	if c.LockTimeout < 0 {
		c.LockTimeout = 0
	}
	return c
}
