// Package calc implements the petrophysical formulas run by the workflow
// engine: density porosity, Larionov shale volume, Archie water saturation,
// Timur permeability and net-to-gross.
//
// Every formula works sample by sample. Missing samples (the well's null
// sentinel or NaN) and samples a formula cannot evaluate are marked invalid
// in the output mask rather than failing the curve; only whole-curve
// problems such as a missing input curve return an *Error.
package calc
