package irq

// Go prototypes for the assembly entry stubs in idt_amd64.s. The stubs are
// never called from Go — their addresses are installed in the interrupt
// table — but the declarations are required so the toolchain emits proper
// metadata for the assembly symbols.

func irqStub0()
func irqStub1()
func irqStub2()
func irqStub3()
func irqStub4()
func irqStub5()
func irqStub6()
func irqStub7()
func irqStub8()
func irqStub9()
func irqStub10()
func irqStub11()
func irqStub12()
func irqStub13()
func irqStub14()
func irqStub15()
func irqStub16()
func irqStub17()
func irqStub18()
func irqStub19()
func irqStub20()
func irqStub21()
func irqStub22()
func irqStub23()
func irqStub24()
func irqStub25()
func irqStub26()
func irqStub27()
func irqStub28()
func irqStub29()
func irqStub30()
func irqStub31()
func irqStub32()
func irqCommonStub()
