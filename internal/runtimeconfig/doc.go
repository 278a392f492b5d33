// Package runtimeconfig holds the settings that may change while the
// service is running.
//
// The Manager keeps an immutable snapshot of the current AppSettings and
// calls subscribers after every change, so components such as the proxy
// transport pool and the auto-test scheduler follow settings without a restart.
package runtimeconfig
