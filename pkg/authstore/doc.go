/*
Package authstore issues and validates the API keys workers present on every
request after registration. The default Store is an in-memory map guarded by
a mutex, the same shape as the teacher's join-token manager; an optional
bbolt-backed Store persists records across restarts for operators who pass a
data directory.
*/
package authstore
