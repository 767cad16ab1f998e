package config

import "fmt"

// A list of config locations
const (
	LoggingLevel = "app.loglevel"
	SqliteDBPath = "app.dbpath"
	APIListen    = "app.APIListen"

	// Scoutd is the api endpoint the cli client commands talk to
	Scoutd = "app.Scoutd"

	// Settlement stuff
	SettlementRetryPeriod = "settlement.retry"
	SettlementWorkers     = "settlement.workers"
	SettlementMaxAttempts = "settlement.maxattempts"
	SettlementStuckAfter  = "settlement.stuckafter"
	SettlementTimeout     = "settlement.timeout"
	SettlementBatchSize   = "settlement.batch"

	CustomSQLDBMode = "db.mode"
	SQLDBWalMode    = "db.wal"

	// Airdrop contract deployment
	AirdropDeployerKey    = "airdrop.deployerkey"
	AirdropAdmin          = "airdrop.admin"
	AirdropFactory        = "airdrop.factory"
	AirdropImplementation = "airdrop.implementation"
	AirdropTreeTimeout    = "airdrop.treetimeout"

	// Builder NFT purchases
	NFTContract = "nft.contract"
	NFTChainID  = "nft.chain"

	// Payout math
	BuilderBps  = "payouts.builderbps"
	TopBuilders = "payouts.topbuilders"
	RankDecay   = "payouts.rankdecay"

	DecentAPI    = "decent.api"
	DecentAPIKey = "decent.apikey"

	// ChainRPCPrefix is followed by a chain id, see ChainRPC
	ChainRPCPrefix = "chains.rpc"
)

// ChainRPC is the config location of the rpc url for a chain id.
func ChainRPC(chainID uint64) string {
	return fmt.Sprintf("%s.%d", ChainRPCPrefix, chainID)
}
