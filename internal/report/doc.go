// Package report defines the collaborators the workflow engine delegates
// to: well validation, report rendering and artifact export. It also ships
// reference implementations of each and the format registry that resolves
// exporters by name.
package report
