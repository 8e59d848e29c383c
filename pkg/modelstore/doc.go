/*
Package modelstore persists successive global model artifacts to disk,
content-addressed by version. Each version is one JSON file named
model_v<N>.json under the store's directory; writes go to a temporary file
in the same directory followed by an atomic rename, so a crash mid-write
never leaves a corrupt artifact behind — it leaves no artifact, or the
previous one untouched.
*/
package modelstore
