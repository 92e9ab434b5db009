// orderhash reads an order as JSON on stdin and prints its canonical
// identity hash. Useful for checking what a creation call will register.
//
// Usage: echo '{"maker":"0x...","side":"sell",...}' | orderhash
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/optionmesh/optionmesh/pkg/api"
)

func main() {
	var dto api.OrderDTO
	if err := json.NewDecoder(os.Stdin).Decode(&dto); err != nil {
		fmt.Fprintf(os.Stderr, "orderhash: decode: %v\n", err)
		os.Exit(1)
	}
	order, err := dto.ToOrder()
	if err != nil {
		fmt.Fprintf(os.Stderr, "orderhash: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(order.Hash().Hex())
}
