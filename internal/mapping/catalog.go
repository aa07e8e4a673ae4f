package mapping

// DefaultCatalog is the module layout seeded into every migrated document.
// Table ids are the ERP's own table names; customers remap them per field.
func DefaultCatalog() map[string]ModuleMapping {
	return map[string]ModuleMapping{
		"produtos": {
			TablesUsed: []string{"TAB_PRODUTO", "TAB_PRODUTO_LOJA", "TAB_SECAO", "TAB_GRUPO", "TAB_SUBGRUPO", "TAB_FORNECEDOR"},
		},
		"vendas": {
			TablesUsed: []string{"TAB_PRODUTO_PDV", "TAB_OPERADORES", "TAB_CUPOM_FINALIZADORA"},
		},
		"estoque": {
			TablesUsed: []string{"TAB_AJUSTE_ESTOQUE", "TAB_PRODUTO_LOJA", "TAB_TIPO_AJUSTE"},
		},
		"fornecedores": {
			TablesUsed: []string{"TAB_FORNECEDOR", "TAB_FORNECEDOR_PRODUTO"},
		},
		"notas_fiscais": {
			TablesUsed: []string{"TAB_FORNECEDOR_NOTA", "TAB_NF", "TAB_NF_ITEM"},
		},
		"prevencao": {
			TablesUsed: []string{},
			Submodules: map[string]ModuleMapping{
				"ruptura": {
					TablesUsed: []string{"TAB_PRODUTO", "TAB_PRODUTO_LOJA", "TAB_PEDIDO", "TAB_PEDIDO_PRODUTO"},
				},
				"quebras": {
					TablesUsed: []string{"TAB_AJUSTE_ESTOQUE", "TAB_PRODUTO", "TAB_TIPO_AJUSTE"},
				},
				"etiquetas": {
					TablesUsed: []string{"TAB_PRODUTO", "TAB_PRODUTO_LOJA"},
				},
			},
		},
	}
}
