package constants

// State version constants for backward compatibility.
// State files carry a version so that cursor formatting changes can be migrated.
//
// Version History:
//   - Version 0: Legacy format, cursor values stored as raw record values
//   - Version 1: Current version, cursor values stored in the cursor strategy's configured format

const (
	LatestStateVersion = 1
)
