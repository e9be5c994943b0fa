// Package device defines the radio-facing side of the vehicle link: the
// Central that scans and dials, the Link to a connected vehicle, the
// opaque Service and Characteristic handles, UUID normalization and the
// connection error types shared by every backend.
package device
