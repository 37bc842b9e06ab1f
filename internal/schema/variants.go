package schema

// Built-in sink schema strings for the two datasets this pipeline ships with.
// Column order and types are part of the sink contract and must not change.
const (
	// FundingRounds is the TechCrunch funding-round dataset: nine positional
	// columns plus the derived hash_code column declared first.
	FundingRounds = "hash_code:STRING,permalink:STRING,numEmps:STRING,category:STRING,city:STRING,state:STRING,fundedDate:STRING,raisedAmt:STRING,raisedCurrency:STRING,round:STRING"

	// BabyNames is the US baby-names dataset: six positional columns, no
	// derived column.
	BabyNames = "state:STRING,gender:STRING,year:STRING,name:STRING,number:STRING,created_date:STRING"
)

// Derived-column binding used by the funding-round schema.
const (
	HashColumn = "hash_code"
	HashSource = "fundedDate"
)
