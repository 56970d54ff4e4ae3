package constants

// Constants that are the same for all chain configurations

const (
	PendingAuthorizersQueueSize = 80 // (Q) The number of items in the authorizers queue.

	BasicMinimumBalance              = 100 // (BS) The basic minimum balance which all services require.
	AdditionalMinimumBalancePerItem  = 10  // (BI) The additional minimum balance required per item of elective service state.
	AdditionalMinimumBalancePerOctet = 1   // (BL) The additional minimum balance required per octet of elective service state.

	MinimumPublicServiceIndex = 1 << 16 // (S) The minimum public service index. Services of indices below this may only be created by the registrar.

	TransferMemoSizeBytes = 128 // (WT) The size of a transfer memo in octets.

	ErasureCodingChunkSize              = 684                                                          // (WE) The basic size of erasure-coded pieces in octets.
	NumberOfErasureCodecPiecesInSegment = 6                                                            // (WP) The number of erasure-coded pieces in a segment.
	SegmentSize                         = ErasureCodingChunkSize * NumberOfErasureCodecPiecesInSegment // (WG) 4104
	MaxExportsPerPackage                = 3072                                                         // (WM) The maximum number of exports in a work-package.

	MaxSizeServiceCode       = 4_000_000 // (WC) The maximum size of service code in octets.
	MaxSizeAuthorizationCode = 64_000    // (WA) The maximum size of is-authorized code in octets.
)
