package rustgen

const entrypointPrelude = `program_entrypoint!(process_instruction);

#[cfg(target_arch = "bpf")]
use pinocchio::default_allocator;

#[cfg(target_arch = "bpf")]
default_allocator!();

#[cfg(target_arch = "bpf")]
#[panic_handler]
fn panic_handler(_info: &core::panic::PanicInfo<'_>) -> ! {
    unsafe {
        pinocchio::syscalls::abort();
    }
}

#[cfg(not(target_arch = "bpf"))]
extern crate std;
`

const initHelpers = `const SYSTEM_PROGRAM_ID: Pubkey = [0u8; 32];

fn minimum_balance(space: usize) -> u64 {
    if let Ok(rent) = Rent::get() {
        return rent.minimum_balance(space);
    }
    let bytes = space as u64 + ACCOUNT_STORAGE_OVERHEAD;
    ((bytes * DEFAULT_LAMPORTS_PER_BYTE_YEAR) as f64 * DEFAULT_EXEMPTION_THRESHOLD) as u64
}

fn create_program_account(
    payer: &AccountInfo,
    new_account: &AccountInfo,
    owner: &Pubkey,
    space: usize,
    signer: Option<&Signer>,
) -> ProgramResult {
    let lamports = minimum_balance(space);
    let mut data = [0u8; 4 + 8 + 8 + 32];
    data[..4].copy_from_slice(&0u32.to_le_bytes());
    data[4..12].copy_from_slice(&lamports.to_le_bytes());
    data[12..20].copy_from_slice(&(space as u64).to_le_bytes());
    data[20..52].copy_from_slice(owner);
    let ix_accounts = [
        AccountMeta::writable_signer(payer.key()),
        AccountMeta::writable_signer(new_account.key()),
    ];
    let ix = Instruction {
        program_id: &SYSTEM_PROGRAM_ID,
        data: &data,
        accounts: &ix_accounts,
    };
    match signer {
        Some(signer) => invoke_signed::<2>(&ix, &[payer, new_account], &[signer.clone()]),
        None => invoke_signed::<2>(&ix, &[payer, new_account], &[]),
    }
}
`

const codecHelpers = `#[allow(dead_code)]
fn read_pubkey(data: &[u8], offset: usize) -> Result<Pubkey, ProgramError> {
    if data.len() < offset + 32 {
        return Err(ProgramError::InvalidInstructionData);
    }
    let mut out = [0u8; 32];
    out.copy_from_slice(&data[offset..offset + 32]);
    Ok(out)
}

#[allow(dead_code)]
fn read_u64(data: &[u8], offset: usize) -> Result<u64, ProgramError> {
    if data.len() < offset + 8 {
        return Err(ProgramError::InvalidInstructionData);
    }
    let mut buf = [0u8; 8];
    buf.copy_from_slice(&data[offset..offset + 8]);
    Ok(u64::from_le_bytes(buf))
}

#[allow(dead_code)]
fn read_u8(data: &[u8], offset: usize) -> Result<u8, ProgramError> {
    if data.len() <= offset {
        return Err(ProgramError::InvalidInstructionData);
    }
    Ok(data[offset])
}

#[allow(dead_code)]
fn write_pubkey(data: &mut [u8], offset: usize, value: &Pubkey) -> Result<(), ProgramError> {
    if data.len() < offset + 32 {
        return Err(ProgramError::InvalidAccountData);
    }
    data[offset..offset + 32].copy_from_slice(value);
    Ok(())
}

#[allow(dead_code)]
fn write_u64(data: &mut [u8], offset: usize, value: u64) -> Result<(), ProgramError> {
    if data.len() < offset + 8 {
        return Err(ProgramError::InvalidAccountData);
    }
    data[offset..offset + 8].copy_from_slice(&value.to_le_bytes());
    Ok(())
}

#[allow(dead_code)]
fn write_u8(data: &mut [u8], offset: usize, value: u8) -> Result<(), ProgramError> {
    if data.len() <= offset {
        return Err(ProgramError::InvalidAccountData);
    }
    data[offset] = value;
    Ok(())
}
`

const arithHelpers = `const DIVISION_BY_ZERO: ProgramError = ProgramError::Custom(1);

#[allow(dead_code)]
fn checked_add(a: u64, b: u64) -> Result<u64, ProgramError> {
    a.checked_add(b).ok_or(ProgramError::ArithmeticOverflow)
}

#[allow(dead_code)]
fn checked_sub(a: u64, b: u64) -> Result<u64, ProgramError> {
    a.checked_sub(b).ok_or(ProgramError::ArithmeticOverflow)
}

#[allow(dead_code)]
fn checked_mul(a: u64, b: u64) -> Result<u64, ProgramError> {
    a.checked_mul(b).ok_or(ProgramError::ArithmeticOverflow)
}

#[allow(dead_code)]
fn checked_div(a: u64, b: u64) -> Result<u64, ProgramError> {
    if b == 0 {
        return Err(DIVISION_BY_ZERO);
    }
    Ok(a / b)
}

#[allow(dead_code)]
fn checked_mul_div_n(factors: &[u64], divisor: u64) -> Result<u64, ProgramError> {
    let mut product: u128 = 1;
    for factor in factors {
        product = product
            .checked_mul(*factor as u128)
            .ok_or(ProgramError::ArithmeticOverflow)?;
    }
    if divisor == 0 {
        return Err(DIVISION_BY_ZERO);
    }
    let value = product / (divisor as u128);
    if value > u64::MAX as u128 {
        return Err(ProgramError::ArithmeticOverflow);
    }
    Ok(value as u64)
}
`
