/*
Package log wraps zerolog with the component-tagged loggers used throughout
the coordinator: log.Init sets the global level and format, and
log.WithComponent/WithWorkerID/WithRoundID derive child loggers that carry
that context on every line.
*/
package log
