package crypto

const (
	HashSize              = 32
	Ed25519PublicSize     = 32
	BandersnatchSize      = 32
	BLSSize               = 144
	MetadataSize          = 128
	ValidatorKeySetLength = BandersnatchSize + Ed25519PublicSize + BLSSize + MetadataSize // 336
)
