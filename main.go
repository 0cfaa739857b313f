package main

import (
	"fmt"

	"github.com/vendorflow/taskintake/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err.Error())
		return
	}
}
