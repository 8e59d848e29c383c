/*
Package privacy applies gradient clipping and optional Gaussian noise to a
worker's weight delta before it reaches aggregation, and validates that a
delta contains only finite values. It mirrors the original coordinator's
PrivacyProtector. Clipping, noise, and validation operate on [][]float64
parameter tensors; ParseDocument and ProtectDocument convert to and from the
JSON delta document.
*/
package privacy
