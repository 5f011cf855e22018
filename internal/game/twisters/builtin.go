package twisters

// Builtin returns the starter twister set that ships with the bot: twenty
// phrases spread across the four difficulty tiers. Deployments can replace
// or extend it with a YAML file via [LoadFile].
func Builtin() []Twister {
	return []Twister{
		// Easy.
		{ID: 1, Text: "She sells seashells by the seashore", Difficulty: Easy, FocusSounds: "S sounds"},
		{ID: 2, Text: "Rubber baby buggy bumpers", Difficulty: Easy, FocusSounds: "B sounds"},
		{ID: 3, Text: "Unique New York", Difficulty: Easy, FocusSounds: "U/Y sounds"},
		{ID: 4, Text: "Toy boat toy boat", Difficulty: Easy, FocusSounds: "T/B sounds"},
		{ID: 5, Text: "Red lorry yellow lorry", Difficulty: Easy, FocusSounds: "L/R sounds"},
		{ID: 6, Text: "Greek grapes Greek grapes", Difficulty: Easy, FocusSounds: "GR sounds"},
		{ID: 7, Text: "Which witch is which", Difficulty: Easy, FocusSounds: "WH sounds"},

		// Medium.
		{ID: 8, Text: "Peter Piper picked a peck of pickled peppers", Difficulty: Medium, FocusSounds: "P sounds"},
		{ID: 9, Text: "How much wood would a woodchuck chuck", Difficulty: Medium, FocusSounds: "W/CH sounds"},
		{ID: 10, Text: "Red leather yellow leather red leather yellow leather", Difficulty: Medium, FocusSounds: "L/R sounds"},
		{ID: 11, Text: "Betty Botter bought some butter but she said the butter's bitter", Difficulty: Medium, FocusSounds: "B/T sounds"},
		{ID: 12, Text: "I scream you scream we all scream for ice cream", Difficulty: Medium, FocusSounds: "SCR sounds"},
		{ID: 13, Text: "Fuzzy Wuzzy was a bear Fuzzy Wuzzy had no hair", Difficulty: Medium, FocusSounds: "F/Z sounds"},
		{ID: 14, Text: "Six slippery snails slid slowly seaward", Difficulty: Medium, FocusSounds: "S/SL sounds"},

		// Hard.
		{ID: 15, Text: "The sixth sick sheik's sixth sheep's sick", Difficulty: Hard, FocusSounds: "S/SH/TH sounds"},
		{ID: 16, Text: "I saw Susie sitting in a shoeshine shop", Difficulty: Hard, FocusSounds: "S/SH sounds"},
		{ID: 17, Text: "Lesser leather never weathered wetter weather better", Difficulty: Hard, FocusSounds: "L/W/TH sounds"},
		{ID: 18, Text: "Brisk brave brigadiers brandished broad bright blades", Difficulty: Hard, FocusSounds: "BR/BL sounds"},

		// Insane.
		{ID: 19, Text: "Pad kid poured curd pulled cod", Difficulty: Insane, FocusSounds: "Multiple clusters"},
		{ID: 20, Text: "The seething sea ceaseth and thus the seething sea sufficeth us", Difficulty: Insane, FocusSounds: "S/TH/C sounds"},
	}
}
