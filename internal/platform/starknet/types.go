package starknet

// Transaction versions. The query variant (2^128 + 1) is used for fee
// estimation so the node never accepts the transaction as executable.
const (
	invokeVersion      = "0x1"
	invokeQueryVersion = "0x100000000000000000000000000000001"
	blockLatest        = "latest"
	blockPending       = "pending"
	executionReverted  = "REVERTED"
	simulationSkipAuth = "SKIP_VALIDATE"
)

// FunctionCall is the request body of starknet_call.
type FunctionCall struct {
	ContractAddress    string   `json:"contract_address"`
	EntryPointSelector string   `json:"entry_point_selector"`
	Calldata           []string `json:"calldata"`
}

// InvokeTxn is a version 1 broadcasted INVOKE transaction.
type InvokeTxn struct {
	Type          string   `json:"type"`
	SenderAddress string   `json:"sender_address"`
	Calldata      []string `json:"calldata"`
	MaxFee        string   `json:"max_fee"`
	Version       string   `json:"version"`
	Signature     []string `json:"signature"`
	Nonce         string   `json:"nonce"`
}

// FeeEstimate is one entry of the starknet_estimateFee result.
type FeeEstimate struct {
	GasConsumed     string `json:"gas_consumed"`
	GasPrice        string `json:"gas_price"`
	DataGasConsumed string `json:"data_gas_consumed"`
	DataGasPrice    string `json:"data_gas_price"`
	OverallFee      string `json:"overall_fee"`
	Unit            string `json:"unit"`
}

// Event is an event emitted during transaction execution.
type Event struct {
	FromAddress string   `json:"from_address"`
	Keys        []string `json:"keys"`
	Data        []string `json:"data"`
}

// Receipt is the subset of a transaction receipt the service inspects.
type Receipt struct {
	TransactionHash string  `json:"transaction_hash"`
	ExecutionStatus string  `json:"execution_status"`
	FinalityStatus  string  `json:"finality_status"`
	RevertReason    string  `json:"revert_reason,omitempty"`
	Events          []Event `json:"events"`
}

type addInvokeResult struct {
	TransactionHash string `json:"transaction_hash"`
}
