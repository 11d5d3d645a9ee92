package transaction

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strconv"

	ui "github.com/holiman/uint256"
)

// TransactionInput is the raw JSON shape of one recorded pool event.
// Amounts travel as decimal strings; swap outputs can be negative.
type TransactionInput struct {
	Type         string `json:"type"`
	ID           string `json:"id"`
	Timestamp    int    `json:"timestamp"`
	Amount0      string `json:"amount0"`
	Amount1      string `json:"amount1"`
	Amount       string `json:"amount,omitempty"`
	SqrtPriceX96 string `json:"sqrtPriceX96,omitempty"`
	Tick         int    `json:"tick,omitempty"`
	TickLower    int    `json:"tickLower,omitempty"`
	TickUpper    int    `json:"tickUpper,omitempty"`
	UseX96       string `json:"useX96,omitempty"`
}

// Transaction is a decoded pool event ready for replay. Negative amounts
// are carried in two's complement.
type Transaction struct {
	Type         string
	Amount       *ui.Int
	Amount0      *ui.Int
	Amount1      *ui.Int
	ID           string
	SqrtPriceX96 *ui.Int
	Tick         int
	TickLower    int
	TickUpper    int
	Timestamp    int
	UseX96       bool
}

func (t Transaction) MarshalJSON() ([]byte, error) {
	switch t.Type {
	case "Swap":
		return json.Marshal(&TransactionInput{
			Type:         t.Type,
			Amount0:      t.Amount0.Dec(),
			Amount1:      t.Amount1.Dec(),
			ID:           t.ID,
			SqrtPriceX96: t.SqrtPriceX96.Dec(),
			Tick:         t.Tick,
			Timestamp:    t.Timestamp,
			UseX96:       strconv.FormatBool(t.UseX96),
		})
	case "Mint", "Burn":
		return json.Marshal(&TransactionInput{
			Type:      t.Type,
			Amount:    t.Amount.Dec(),
			Amount0:   t.Amount0.Dec(),
			Amount1:   t.Amount1.Dec(),
			TickLower: t.TickLower,
			TickUpper: t.TickUpper,
			ID:        t.ID,
			Timestamp: t.Timestamp,
		})
	case "Flash":
		return json.Marshal(&TransactionInput{
			Type:      t.Type,
			Amount0:   t.Amount0.Dec(),
			Amount1:   t.Amount1.Dec(),
			ID:        t.ID,
			Timestamp: t.Timestamp,
		})
	}
	return nil, fmt.Errorf("transaction %s: unknown type %q", t.ID, t.Type)
}

// FromInput decodes one raw event.
func FromInput(in TransactionInput) (Transaction, error) {
	switch in.Type {
	case "Mint", "Burn", "Swap", "Flash":
	default:
		return Transaction{}, fmt.Errorf("transaction %s: unknown type %q", in.ID, in.Type)
	}
	amount, err := parseAmount(in.Amount)
	if err != nil {
		return Transaction{}, fmt.Errorf("transaction %s: amount: %w", in.ID, err)
	}
	amount0, err := parseAmount(in.Amount0)
	if err != nil {
		return Transaction{}, fmt.Errorf("transaction %s: amount0: %w", in.ID, err)
	}
	amount1, err := parseAmount(in.Amount1)
	if err != nil {
		return Transaction{}, fmt.Errorf("transaction %s: amount1: %w", in.ID, err)
	}
	sqrtPrice, err := parseAmount(in.SqrtPriceX96)
	if err != nil {
		return Transaction{}, fmt.Errorf("transaction %s: sqrtPriceX96: %w", in.ID, err)
	}
	useX96 := false
	if in.UseX96 != "" {
		useX96, err = strconv.ParseBool(in.UseX96)
		if err != nil {
			return Transaction{}, fmt.Errorf("transaction %s: useX96: %w", in.ID, err)
		}
	}
	return Transaction{
		Type:         in.Type,
		Amount:       amount,
		Amount0:      amount0,
		Amount1:      amount1,
		ID:           in.ID,
		SqrtPriceX96: sqrtPrice,
		Tick:         in.Tick,
		TickLower:    in.TickLower,
		TickUpper:    in.TickUpper,
		Timestamp:    in.Timestamp,
		UseX96:       useX96,
	}, nil
}

// Load reads a JSON array of recorded events from path.
func Load(path string) ([]Transaction, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	var inputs []TransactionInput
	if err := json.Unmarshal(raw, &inputs); err != nil {
		return nil, fmt.Errorf("load transactions %s: %w", path, err)
	}
	transactions := make([]Transaction, 0, len(inputs))
	for _, in := range inputs {
		trans, err := FromInput(in)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, trans)
	}
	return transactions, nil
}

// parseAmount reads a decimal string into two's-complement form. Empty
// strings read as zero.
func parseAmount(s string) (*ui.Int, error) {
	if s == "" {
		return ui.NewInt(0), nil
	}
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("bad decimal %q", s)
	}
	x, overflow := ui.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("decimal %q overflows 256 bits", s)
	}
	return x, nil
}
