// +build gofuzz

package lexer

import (
	"fmt"
)

func Fuzz(data []byte) int {
	l := Lexer{}
	metric, err := l.Run(data)
	if err != nil {
		if metric != nil {
			panic(fmt.Errorf("metric returned with error %v: %+v", err, metric))
		}
		return 0
	}
	if metric.Name == "" {
		panic(fmt.Errorf("metric without name: %+v", metric))
	}
	return 1
}
