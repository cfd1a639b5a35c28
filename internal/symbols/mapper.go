package symbols

import "strings"

// ToBinance converts exchange-specific symbol formats to Binance style.
// It ensures symbols are uppercase without separators.
// Currently supported exchanges: binance, bybit, okx.
func ToBinance(exchange, sym string) string {
	sym = strings.ToUpper(sym)
	switch strings.ToLower(exchange) {
	case "binance":
		switch sym {
		case "1000BONKUSDT":
			sym = "BONKUSDT"
		case "1000PEPEUSDT":
			sym = "PEPEUSDT"
		case "1000SHIBUSDT":
			sym = "SHIBUSDT"
		}
	case "bybit":
		switch sym {
		case "1000BONKUSDT":
			sym = "BONKUSDT"
		case "1000PEPEUSDT":
			sym = "PEPEUSDT"
		case "SHIB1000USDT":
			sym = "SHIBUSDT"
		}
	case "okx":
		sym = strings.TrimSuffix(sym, "-SWAP")
		sym = strings.ReplaceAll(sym, "-", "")
	default:
		// others already use the desired format
	}
	return sym
}

// ToOkxInstID converts a Binance-style perpetual symbol to the OKX
// instrument identifier for the same swap.
// Examples:
//
//	BTCUSDT -> BTC-USDT-SWAP
//	ETHUSDT -> ETH-USDT-SWAP
//
// Symbols not quoted in USDT or USDC are returned unchanged.
func ToOkxInstID(sym string) string {
	sym = strings.ToUpper(sym)
	for _, quote := range []string{"USDT", "USDC"} {
		if base, ok := strings.CutSuffix(sym, quote); ok && base != "" {
			return base + "-" + quote + "-SWAP"
		}
	}
	return sym
}

// ToBybitLinear converts a Binance-style perpetual symbol to the Bybit linear
// contract name. Bybit uses the same compact format for linear perpetuals, so
// the mapping only handles the thousand-multiplier contracts.
func ToBybitLinear(sym string) string {
	sym = strings.ToUpper(sym)
	switch sym {
	case "BONKUSDT":
		return "1000BONKUSDT"
	case "PEPEUSDT":
		return "1000PEPEUSDT"
	case "SHIBUSDT":
		return "SHIB1000USDT"
	}
	return sym
}
