// Package gpu allocates CUDA devices to runs.
//
// Devices are taken from the configured pool in first-fit order. A device
// counts as busy while any run record holding it is still active, so a
// crashed run releases its device as soon as its status is updated.
package gpu
