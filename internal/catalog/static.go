package catalog

import "token-detector/internal/domain"

// staticMainnetTokens is the curated list scanned on mainnet when the user
// turned token detection off.
var staticMainnetTokens = []domain.CatalogEntry{
	{Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Symbol: "USDT", Decimals: 6, Name: "Tether USD"},
	{Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Symbol: "USDC", Decimals: 6, Name: "USD Coin"},
	{Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Symbol: "DAI", Decimals: 18, Name: "Dai Stablecoin"},
	{Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Symbol: "WETH", Decimals: 18, Name: "Wrapped Ether"},
	{Address: "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599", Symbol: "WBTC", Decimals: 8, Name: "Wrapped BTC"},
	{Address: "0x514910771AF9Ca656af840dff83E8264EcF986CA", Symbol: "LINK", Decimals: 18, Name: "ChainLink Token"},
	{Address: "0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984", Symbol: "UNI", Decimals: 18, Name: "Uniswap"},
	{Address: "0x7Fc66500c84A76Ad7e9c93437bFc5Ac33E2DDaE9", Symbol: "AAVE", Decimals: 18, Name: "Aave Token"},
	{Address: "0x95aD61b0a150d79219dCF64E1E6Cc01f0B64C4cE", Symbol: "SHIB", Decimals: 18, Name: "SHIBA INU"},
	{Address: "0x9f8F72aA9304c8B593d555F12eF6589cC3A579A2", Symbol: "MKR", Decimals: 18, Name: "Maker"},
	{Address: "0x7D1AfA7B718fb893dB30A3aBc0Cfc608AaCfeBB0", Symbol: "MATIC", Decimals: 18, Name: "Matic Token"},
	{Address: "0xc00e94Cb662C3520282E6f5717214004A7f26888", Symbol: "COMP", Decimals: 18, Name: "Compound"},
}

// StaticMainnetTokenList returns a fresh copy of the curated mainnet list.
func StaticMainnetTokenList() domain.TokenList {
	list := make(domain.TokenList, len(staticMainnetTokens))
	for _, entry := range staticMainnetTokens {
		list[entry.Address] = entry
	}
	return list
}
