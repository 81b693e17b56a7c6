// Package all registers every built-in sink.
package all

import (
	_ "firestige.xyz/rawsniff/internal/sink/console"
	_ "firestige.xyz/rawsniff/internal/sink/counter"
	_ "firestige.xyz/rawsniff/internal/sink/kafka"
)
